// Package core contains the API version transformation engine: the version
// catalog, the change registry, and the transformer that folds registered
// changes over request and response payloads. Route, storage, and queue
// adapters depend on this package; core must not depend on them.
package core
