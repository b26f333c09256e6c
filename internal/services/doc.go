// Package services holds the error taxonomy and context annotations shared
// by the pipeline stages and the external collaborator clients.
package services
