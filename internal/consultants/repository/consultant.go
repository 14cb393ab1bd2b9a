package repository

import (
	"context"
	"errors"
	"fmt"

	consultantserrors "consultbook/internal/consultants/errors"
	"consultbook/pkg/config"
	mongotx "consultbook/pkg/db/mongo"
	"consultbook/pkg/db/postgres"
	"consultbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const (
	CollectionName = "Consultants"
)

// ConsultantRepository is a read model. Consultants are maintained by the
// staff directory and never written here.
type ConsultantRepository interface {
	FindByID(ctx context.Context, id string) (*model.Consultant, error)
}

type mongoConsultantRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoConsultantRepository(cfg *config.Config) ConsultantRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoConsultantRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoConsultantRepository) FindByID(ctx context.Context, id string) (*model.Consultant, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var consultant model.Consultant
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&consultant)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, consultantserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find consultant: %w", err)
	}
	return &consultant, nil
}

type postgresConsultantRepository struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewPostgresConsultantRepository(cfg *config.Config) ConsultantRepository {
	return &postgresConsultantRepository{
		cfg: cfg,
		db:  cfg.Client.Postgres,
	}
}

func (r *postgresConsultantRepository) FindByID(ctx context.Context, id string) (*model.Consultant, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var consultant model.Consultant
	err := postgres.Conn(ctx, r.db).First(&consultant, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, consultantserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find consultant: %w", err)
	}
	return &consultant, nil
}
