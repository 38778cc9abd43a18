/*
Copyright 2024 batisdev

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package batis

import (
	"github.com/go-batisdev/batis/dynsql"
)

// Action is the kind of SQL a statement performs.
type Action string

const (
	Select Action = "select"
	Insert Action = "insert"
	Update Action = "update"
	Delete Action = "delete"
)

// StatementType selects how a statement executes.
type StatementType int

const (
	// StatementPrepared executes through a prepared statement.
	StatementPrepared StatementType = iota
	// StatementCallable executes a stored procedure; output-mode parameter
	// descriptors are written back into the caller's parameter object and
	// replayed on local-cache hits.
	StatementCallable
)

// MappedStatement is one registered statement: an immutable SQL source
// built at mapper-registration time plus its execution options.
type MappedStatement struct {
	id            string
	namespace     string
	action        Action
	source        dynsql.SQLSource
	statementType StatementType
	flushCache    bool
	attrs         map[string]string
	name          string
}

// ID returns the statement id local to its mapper.
func (s *MappedStatement) ID() string { return s.id }

// Namespace returns the mapper namespace.
func (s *MappedStatement) Namespace() string { return s.namespace }

// Name returns the namespaced statement name.
func (s *MappedStatement) Name() string {
	if s.name == "" {
		if s.namespace == "" {
			s.name = s.id
		} else {
			s.name = s.namespace + "." + s.id
		}
	}
	return s.name
}

// Action returns the statement's SQL action.
func (s *MappedStatement) Action() Action { return s.action }

// FlushCache reports whether a top-level execution of this query clears the
// local cache first. Writes always clear it regardless.
func (s *MappedStatement) FlushCache() bool { return s.flushCache }

// Callable reports whether the statement is a stored-procedure call.
func (s *MappedStatement) Callable() bool { return s.statementType == StatementCallable }

// Attribute returns a raw statement attribute from the mapper XML.
func (s *MappedStatement) Attribute(key string) string { return s.attrs[key] }

// BoundSQL composes the statement's SQL source against param.
func (s *MappedStatement) BoundSQL(param any) (*dynsql.BoundSQL, error) {
	return s.source.BoundSQL(param)
}
