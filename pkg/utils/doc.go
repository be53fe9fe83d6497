// Package utils provides small helpers shared by the graph construction
// pipeline:
//   - mention normalization applied to every extracted string (helpers.go)
//   - validation of extracted mentions and relationships (validation.go)
//   - vector helpers used by the similarity oracle (helpers.go)
package utils
