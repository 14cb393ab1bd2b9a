package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"customer_id",
			"customer_name",
			"customer_email",
			"appointment_type",
			"is_kitchen",
			"is_bedroom",
			"slot_id",
			"status",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"customer_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"customer_name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 120,
			},

			"customer_email": bson.M{
				"bsonType":  "string",
				"maxLength": 254,
			},

			"customer_phone": bson.M{
				"bsonType": "string",
				"pattern":  `^\+[1-9]\d{1,14}$`,
			},

			"postcode": bson.M{
				"bsonType":  "string",
				"maxLength": 10,
			},

			"appointment_type": bson.M{
				"bsonType": "string",
				"enum":     []string{"HOME_MEASUREMENT", "ONLINE", "SHOWROOM"},
			},

			"is_kitchen": bson.M{"bsonType": "bool"},
			"is_bedroom": bson.M{"bsonType": "bool"},

			"slot_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"consultant_id":       bson.M{"bsonType": "string"},
			"showroom_id":         bson.M{"bsonType": "string"},
			"rescheduled_from_id": bson.M{"bsonType": "string"},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"PENDING",
					"CONFIRMED",
					"CANCELLED",
					"COMPLETED",
					"NO_SHOW",
					"RESCHEDULED",
				},
			},

			"cancellation_reason": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"cancelled_by": bson.M{"bsonType": "string"},
			"cancelled_at": bson.M{"bsonType": "date"},

			"notes": bson.M{
				"bsonType":  "string",
				"maxLength": 2000,
			},

			"created_at": bson.M{"bsonType": "date"},
			"updated_at": bson.M{"bsonType": "date"},
		},
	},
}
