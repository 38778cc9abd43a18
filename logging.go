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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-batisdev/batis/dynsql"
)

// DebugInterceptor logs every QueryBound and Update call with its statement
// name and elapsed time; QueryBound entries also carry the SQL. A nil Logger
// uses the logrus standard logger.
type DebugInterceptor struct {
	Logger *logrus.Logger
}

func (d *DebugInterceptor) Signatures() []Signature {
	return []Signature{
		{Type: "Executor", Method: "QueryBound"},
		{Type: "Executor", Method: "Update"},
	}
}

func (d *DebugInterceptor) Intercept(invocation *Invocation) (any, error) {
	logger := d.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	fields := logrus.Fields{"method": invocation.Method}
	if stmt, ok := invocationStatement(invocation); ok {
		fields["statement"] = stmt.Name()
	}
	if invocation.Method == "QueryBound" {
		if bound, ok := invocation.Args[6].(*dynsql.BoundSQL); ok {
			fields["sql"] = bound.SQL()
		}
	}

	start := time.Now()
	result, err := invocation.Proceed()
	fields["elapsed"] = time.Since(start).String()

	entry := logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn("statement failed")
	} else {
		entry.Debug("statement executed")
	}
	return result, err
}

var _ Interceptor = (*DebugInterceptor)(nil)
