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

// Package batis turns declarative mapping definitions plus runtime
// parameters into executed SQL statements. Mapper XML defines dynamic SQL
// trees (package dynsql); a session-scoped executor runs them against a
// transactional connection with a first-level result cache and a deferred
// load queue; interceptors wrap executor operations so cross-cutting
// behaviors can rewrite arguments or results.
package batis
