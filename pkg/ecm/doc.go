// Package ecm provides a hierarchical, path-addressed content repository with
// typed nodes, per-language content variants and optional versioning.
//
// It exposes a single Service interface that orchestrates saving, moving,
// loading and listing content items on top of a pluggable tree Store and a
// pluggable BlobStore for binary payloads. Implementations of stores (memory,
// Badger, Postgres) and blob stores (memory, filesystem, S3) are provided under
// subpackages.
//
// # Addressing
//
// Every node has a unique absolute path made of escaped name segments
// ("/radien/documents/report%3A2024"). Callers address logical content by
// view id plus language; several language variants share one view id and
// live at different paths.
//
// # Versioning
//
// Items created with WithVersioning carry the "mix:versionable" capability.
// Each write of such an item is bracketed by a checkout/checkin pair which
// appends a VersionRecord to the node's history. The last record is the
// baseline; deleting the baseline restores the preceding record onto the node.
package ecm
