// Package crawler implements the same-site breadth-first frontier along with
// the task, page and collaborator types shared by the ingestion pipeline.
package crawler
