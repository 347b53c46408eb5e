// Package schema defines the records leadsync persists: locations with their
// lead data sheet link and sync status, CRM contacts cached per location, and
// the OAuth tokens used to read contacts from the CRM.
//
// Records are plain structs with a Validate method. The db package refuses to
// upsert a record that does not validate, so every row in the cache satisfies
// the rules below.
//
// Locations
//
// A location is keyed by its CRM location id. Its status moves from
// not_started to done or error after a reconciliation attempt:
//
//	not_started ──► done
//	     │
//	     └───────► error ──► (retried from scratch on the next run)
//
// Contacts
//
// Contacts are keyed by CRM contact id and always belong to one location.
// Email is stored lower-cased and phone is stored in E.164 form so that
// matching can compare them with plain equality.
package schema
