package core

import (
	"go.uber.org/zap"

	"github.com/oneconcern/collection-registry/pkg/model"
	"github.com/oneconcern/collection-registry/pkg/schema"
	"github.com/oneconcern/collection-registry/pkg/storage"
)

// Option is a functor to pass optional parameters to the submitter and the updater
type Option func(*settings)

const defaultConcurrency = 4

// DefaultLabels are set on metadata update pull requests
var DefaultLabels = []string{"automated-pr", "collection-metadata"}

// Catalog locates the list of published collections
type Catalog struct {
	Repository storage.Repository
	Ref        string
	Path       string
	Author     string
}

// DefaultCatalog is the catalog of integrations maintained in the core repository
func DefaultCatalog() Catalog {
	return Catalog{
		Repository: storage.Repository{Owner: "PrefectHQ", Name: model.CoreCollection},
		Ref:        model.TrunkBranch,
		Path:       "docs/integrations/catalog",
		Author:     "Prefect",
	}
}

type settings struct {
	l                *zap.Logger
	retry            RetryPolicy
	locker           Locker
	validator        *schema.Validator
	releases         storage.Releases
	baseBranch       string
	collectionsOwner string
	concurrency      int
	labels           []string
	catalog          Catalog
}

func defaultSettings() settings {
	return settings{
		l:                zap.NewNop(),
		retry:            DefaultRetryPolicy(),
		baseBranch:       model.TrunkBranch,
		collectionsOwner: "PrefectHQ",
		concurrency:      defaultConcurrency,
		labels:           DefaultLabels,
		catalog:          DefaultCatalog(),
	}
}

func newSettings(opts []Option) (settings, error) {
	s := defaultSettings()
	for _, apply := range opts {
		apply(&s)
	}
	s.retry = s.retry.withDefaults()
	if s.locker == nil {
		s.locker = NewProcessLock()
	}
	if s.validator == nil {
		v, err := schema.Default()
		if err != nil {
			return s, err
		}
		s.validator = v
	}
	return s, nil
}

// Logger sets the logger
func Logger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.l = l
		}
	}
}

// Retry sets the retry policy of submissions
func Retry(policy RetryPolicy) Option {
	return func(s *settings) {
		s.retry = policy
	}
}

// Lock sets the lock serializing snapshot writes. It defaults to an in-process lock.
func Lock(locker Locker) Option {
	return func(s *settings) {
		s.locker = locker
	}
}

// Validator sets the schema validator
func Validator(v *schema.Validator) Option {
	return func(s *settings) {
		s.validator = v
	}
}

// Releases sets the resolver of the latest release of collections.
// It defaults to the remote store, whenever it knows about releases.
func Releases(releases storage.Releases) Option {
	return func(s *settings) {
		s.releases = releases
	}
}

// BaseBranch sets the branch of the registry which is never written to directly. It defaults to "main".
func BaseBranch(branch string) Option {
	return func(s *settings) {
		if branch != "" {
			s.baseBranch = branch
		}
	}
}

// CollectionsOwner sets the owner of the repositories of collections
func CollectionsOwner(owner string) Option {
	return func(s *settings) {
		if owner != "" {
			s.collectionsOwner = owner
		}
	}
}

// Concurrency sets the max number of collections updated concurrently
func Concurrency(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Labels sets the labels of metadata update pull requests
func Labels(labels []string) Option {
	return func(s *settings) {
		if len(labels) > 0 {
			s.labels = labels
		}
	}
}

// WithCatalog sets the catalog of published collections
func WithCatalog(catalog Catalog) Option {
	return func(s *settings) {
		if catalog.Repository.Owner != "" && catalog.Repository.Name != "" {
			s.catalog.Repository = catalog.Repository
		}
		if catalog.Ref != "" {
			s.catalog.Ref = catalog.Ref
		}
		if catalog.Path != "" {
			s.catalog.Path = catalog.Path
		}
		if catalog.Author != "" {
			s.catalog.Author = catalog.Author
		}
	}
}
