// Package sanitizer normalizes customer input before validation and storage.
//
// All functions are idempotent and handle invalid input by returning an empty
// string rather than an error, leaving the decision to the validator.
//
// Normalization includes:
//   - Phone numbers: E.164 (+[country][number]), parsed against configured regions
//   - Emails: trimmed and lowercased
//   - Postcodes: uppercased, single space before the inward code
//   - Free text: whitespace collapsed, control characters removed
package sanitizer
