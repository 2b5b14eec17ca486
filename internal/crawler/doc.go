// Package crawler defines the domain types, collaborator interfaces, and typed
// errors shared by every stage of the job-posting harvest pipeline.
package crawler
