package model

type Specialisation string

const (
	SpecialisationKitchen Specialisation = "KITCHEN"
	SpecialisationBedroom Specialisation = "BEDROOM"
	SpecialisationBoth    Specialisation = "BOTH"
)

// Covers reports whether a consultant with this specialisation can handle a
// booking with the given kitchen/bedroom flags.
func (s Specialisation) Covers(isKitchen, isBedroom bool) bool {
	switch s {
	case SpecialisationBoth:
		return true
	case SpecialisationKitchen:
		return !isBedroom
	case SpecialisationBedroom:
		return !isKitchen
	default:
		return false
	}
}

// Consultant is the read model owned by the staff directory.
type Consultant struct {
	ID             string         `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(64)"`
	Name           string         `json:"name" bson:"name" gorm:"type:varchar(120)"`
	Specialisation Specialisation `json:"specialisation" bson:"specialisation" gorm:"type:varchar(16);not null"`
	IsActive       bool           `json:"is_active" bson:"is_active" gorm:"not null"`
	ShowroomID     *string        `json:"showroom_id,omitempty" bson:"showroom_id,omitempty" gorm:"type:varchar(64)"`
}

func (Consultant) TableName() string { return "consultants" }
