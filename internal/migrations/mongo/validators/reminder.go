package validators

import "go.mongodb.org/mongo-driver/bson"

var ReminderValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"booking_id",
			"customer_id",
			"reminder_type",
			"channel",
			"status",
			"template_id",
			"scheduled_at",
			"retry_count",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id":         bson.M{"bsonType": "string"},
			"booking_id":  bson.M{"bsonType": "string", "minLength": 1},
			"customer_id": bson.M{"bsonType": "string"},

			"reminder_type": bson.M{
				"bsonType": "string",
				"enum": []string{
					"APPOINTMENT_24H",
					"APPOINTMENT_1H",
					"APPOINTMENT_CONFIRMATION",
					"APPOINTMENT_CANCELLATION",
					"APPOINTMENT_RESCHEDULED",
				},
			},

			"channel": bson.M{
				"bsonType": "string",
				"enum":     []string{"EMAIL", "SMS", "PUSH"},
			},

			"status": bson.M{
				"bsonType": "string",
				"enum":     []string{"PENDING", "SENT", "DELIVERED", "FAILED", "CANCELLED"},
			},

			"template_id":  bson.M{"bsonType": "string"},
			"scheduled_at": bson.M{"bsonType": "date"},
			"sent_at":      bson.M{"bsonType": "date"},
			"delivered_at": bson.M{"bsonType": "date"},
			"failed_at":    bson.M{"bsonType": "date"},

			"failure_reason": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"retry_count": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
		},
	},
}
