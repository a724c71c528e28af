package discovery

import (
	"sync/atomic"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/domain/schema"
)

// Resolver maps incoming documents to a document type. The registry is
// published once after discovery and only read afterwards.
type Resolver struct {
	classifier *Classifier
	typeField  string
	registry   atomic.Pointer[schema.Registry]
}

// NewResolver creates a resolver with no registry; every document is classified on the fly until one is set.
func NewResolver(classifier *Classifier, typeField string) *Resolver {
	if classifier == nil {
		classifier = NewClassifier()
	}
	if typeField == "" {
		typeField = defaultTypeField
	}
	return &Resolver{classifier: classifier, typeField: typeField}
}

// SetRegistry publishes the registry built at startup.
func (r *Resolver) SetRegistry(reg *schema.Registry) {
	r.registry.Store(reg)
}

// Resolve returns the type name and field classification for doc. Types not
// seen at discovery are classified from doc itself without touching the registry.
func (r *Resolver) Resolve(collection string, doc change.Document) (string, schema.FieldStructure) {
	discriminator, _ := doc.String(r.typeField)
	if e, ok := r.registry.Load().Resolve(collection, discriminator); ok {
		return e.TypeName, e.Fields
	}
	typeName := collection
	if discriminator != "" {
		typeName = discriminator
	}
	return typeName, r.classifier.Classify(doc)
}
