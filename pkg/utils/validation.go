package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/soundprediction/go-graphrag/pkg/types"
)

var (
	// ErrEmptyEntityName is returned when an extracted entity has no name.
	ErrEmptyEntityName = errors.New("entity name is empty")
	// ErrInvalidClusterSize is returned for a non-positive max cluster size.
	ErrInvalidClusterSize = errors.New("max cluster size must be positive")
)

// RelationshipValidationError names a relationship with an empty endpoint.
type RelationshipValidationError struct {
	Relationship types.RawRelationship
	Field        string
}

func (e RelationshipValidationError) Error() string {
	return fmt.Sprintf("relationship %q -> %q has empty %s",
		e.Relationship.Source, e.Relationship.Target, e.Field)
}

// ValidateMention checks that a normalized mention can become an entity.
func ValidateMention(m types.Mention) error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyEntityName
	}
	return nil
}

// ValidateRawRelationship checks that both endpoints are named.
func ValidateRawRelationship(r types.RawRelationship) error {
	if strings.TrimSpace(r.Source) == "" {
		return RelationshipValidationError{Relationship: r, Field: "source"}
	}
	if strings.TrimSpace(r.Target) == "" {
		return RelationshipValidationError{Relationship: r, Field: "target"}
	}
	return nil
}

// ValidateMaxClusterSize checks the partitioner size bound.
func ValidateMaxClusterSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidClusterSize, size)
	}
	return nil
}
