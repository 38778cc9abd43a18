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

// batisctl loads mapper XML files and runs one statement against a live
// database: a smoke-test harness for mapper development.
//
//	batisctl --driver sqlite --dsn app.db -m user.xml -s user.byName -p name=ada
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"database/sql"

	flags "github.com/jessevdk/go-flags"
	"github.com/k0kubun/pp/v3"
	"github.com/sirupsen/logrus"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/go-batisdev/batis"
)

type options struct {
	Config    string   `short:"c" long:"config" description:"YAML settings file"`
	Mappers   []string `short:"m" long:"mapper" required:"true" description:"mapper XML file (repeatable)"`
	Driver    string   `long:"driver" default:"sqlite" choice:"sqlite" choice:"mysql" choice:"postgres" description:"database driver"`
	DSN       string   `long:"dsn" required:"true" description:"database connection string"`
	Statement string   `short:"s" long:"statement" required:"true" description:"namespaced statement id"`
	Params    []string `short:"p" long:"param" description:"name=value statement parameter (repeatable)"`
	Offset    int64    `long:"offset" description:"row offset"`
	Limit     int64    `long:"limit" default:"-1" description:"row limit (-1 for all)"`
	Debug     bool     `short:"d" long:"debug" description:"log statements and dump results"`
}

func main() {
	log := logrus.New()
	if err := run(log); err != nil {
		log.Fatal(err)
	}
}

func run(log *logrus.Logger) error {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return nil
		}
		return err
	}
	if opts.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	settings := batis.DefaultSettings()
	if opts.Config != "" {
		var err error
		if settings, err = batis.LoadSettingsFile(opts.Config); err != nil {
			return err
		}
	}
	settings.Dialect = opts.Driver
	settings.Debug = settings.Debug || opts.Debug

	configuration := batis.NewConfiguration(settings)
	for _, path := range opts.Mappers {
		if err := configuration.Mappers.ParseFile(path); err != nil {
			return err
		}
	}

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	engine, err := batis.New(configuration, db)
	if err != nil {
		return err
	}
	stmt, err := engine.Statement(opts.Statement)
	if err != nil {
		return err
	}

	session := engine.Session()
	defer session.Close(false)

	param := make(map[string]any, len(opts.Params))
	for _, pair := range opts.Params {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("malformed parameter %q, want name=value", pair)
		}
		param[name] = value
	}

	ctx := context.Background()
	if stmt.Action() == batis.Select {
		bounds := batis.DefaultRowBounds()
		if opts.Offset > 0 {
			bounds.Offset = opts.Offset
		}
		if opts.Limit >= 0 {
			bounds.Limit = opts.Limit
		}
		rows, err := session.Query(ctx, stmt, param, bounds, nil)
		if err != nil {
			return err
		}
		if opts.Debug {
			pp.Println(rows)
		} else {
			for _, row := range rows {
				fmt.Fprintln(os.Stdout, row)
			}
		}
		log.WithField("rows", len(rows)).Debug("query finished")
		return nil
	}

	affected, err := session.Update(ctx, stmt, param)
	if err != nil {
		return err
	}
	if err = session.Commit(ctx, true); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%d row(s) affected\n", affected)
	return nil
}
