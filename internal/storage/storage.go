// Package storage persists the documents the job runner reads and writes:
// experiments, query sets, search configurations, judgments, evaluation
// results and scheduled jobs.
package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/security"
)

// errNotFound is returned by backends for a missing key.
var errNotFound = stderrors.New("document not found")

// Backend stores raw JSON documents grouped by namespace.
type Backend interface {
	Get(ctx context.Context, namespace, id string) ([]byte, error)
	Put(ctx context.Context, namespace, id string, data []byte) error
	Delete(ctx context.Context, namespace, id string) error
	List(ctx context.Context, namespace string) ([][]byte, error)
	Close() error
}

// Collection is a typed view over one namespace of a backend.
type Collection[T any] struct {
	backend   Backend
	namespace string
	kind      string
}

// NewCollection creates a collection. kind names the document type in
// NOT_FOUND errors.
func NewCollection[T any](backend Backend, namespace, kind string) *Collection[T] {
	return &Collection[T]{backend: backend, namespace: namespace, kind: kind}
}

// Get loads the document with id. A missing id yields a NOT_FOUND error.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := c.backend.Get(ctx, c.namespace, id)
	if err != nil {
		if stderrors.Is(err, errNotFound) {
			return nil, errors.NotFoundError(c.kind, id)
		}
		return nil, errors.Wrap(errors.CodeInternal, fmt.Sprintf("loading %s %s", c.kind, id), err)
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, fmt.Sprintf("decoding %s %s", c.kind, id), err)
	}
	return &doc, nil
}

// Put stores doc under id, replacing any previous version.
func (c *Collection[T]) Put(ctx context.Context, id string, doc *T) error {
	if err := validateID(id); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, fmt.Sprintf("encoding %s %s", c.kind, id), err)
	}
	if err := c.backend.Put(ctx, c.namespace, id, data); err != nil {
		return errors.Wrap(errors.CodeInternal, fmt.Sprintf("saving %s %s", c.kind, id), err)
	}
	return nil
}

// Delete removes id. Deleting a missing id is not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := c.backend.Delete(ctx, c.namespace, id); err != nil {
		return errors.Wrap(errors.CodeInternal, fmt.Sprintf("deleting %s %s", c.kind, id), err)
	}
	return nil
}

// List returns every document in the collection. Undecodable documents
// are skipped.
func (c *Collection[T]) List(ctx context.Context) ([]*T, error) {
	raw, err := c.backend.List(ctx, c.namespace)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, fmt.Sprintf("listing %s", c.kind), err)
	}

	docs := make([]*T, 0, len(raw))
	for _, data := range raw {
		var doc T
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

func validateID(id string) error {
	if err := security.ValidateID(id); err != nil {
		return errors.ValidationError("invalid document id: " + err.Error())
	}
	return nil
}
