package validators

import "go.mongodb.org/mongo-driver/bson"

var ConsultantValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "name", "specialisation", "is_active"},

		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{"bsonType": "string"},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 120,
			},

			"specialisation": bson.M{
				"bsonType": "string",
				"enum":     []string{"KITCHEN", "BEDROOM", "BOTH"},
			},

			"is_active":   bson.M{"bsonType": "bool"},
			"showroom_id": bson.M{"bsonType": "string"},
		},
	},
}
