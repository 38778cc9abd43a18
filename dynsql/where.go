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

package dynsql

// NewWhereNode builds the WHERE preset: a trim with prefix "WHERE" that
// strips a leading AND/OR left over from unmatched leading conditions. An
// empty body emits no WHERE at all.
//
//	SELECT * FROM t
//	<where>
//	  <if test="name != null">AND name = #{name}</if>
//	</where>
func NewWhereNode(nodes ...Node) *TrimNode {
	return &TrimNode{
		Nodes:  MixedNode(nodes),
		Prefix: "WHERE",
		PrefixOverrides: []string{
			"AND ", "OR ",
			"AND\n", "OR\n",
			"AND\r", "OR\r",
			"AND\t", "OR\t",
		},
	}
}
