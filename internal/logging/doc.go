// Package logging builds the structured logger used by the chunkup command.
//
// Records are written as JSON with normalized field names ("ts" and
// "severity") and tagged with the service name so they can be queried
// alongside other services.
package logging
