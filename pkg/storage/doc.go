// Copyright © 2018 One Concern

// Package storage provides interfaces to handle files, branches, releases and
// pull requests hosted on a remote version-controlled content API.
//
// This package supports the following backends:
//   - GitHub REST API
//   - local file system (dry runs and tests)
package storage
