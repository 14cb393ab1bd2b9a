package validators

import "go.mongodb.org/mongo-driver/bson"

var SlotValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "consultant_id", "date", "start_time", "end_time", "status"},

		"additionalProperties": true,

		"properties": bson.M{
			"_id":           bson.M{"bsonType": "string"},
			"consultant_id": bson.M{"bsonType": "string", "minLength": 1},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"start_time": bson.M{
				"bsonType": "string",
				"pattern":  `^([01]\d|2[0-3]):[0-5]\d$`,
			},

			"end_time": bson.M{
				"bsonType": "string",
				"pattern":  `^([01]\d|2[0-3]):[0-5]\d$`,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum":     []string{"AVAILABLE", "BOOKED", "BLOCKED"},
			},

			// null while the slot is free.
			"booking_id": bson.M{"bsonType": []string{"string", "null"}},

			"showroom_id": bson.M{"bsonType": "string"},
		},
	},
}
