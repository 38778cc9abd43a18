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

// NewSetNode builds the SET preset for UPDATE statements: a trim with
// prefix "SET" that drops the trailing comma left by the last applied
// assignment.
//
//	UPDATE users
//	<set>
//	  <if test="name != null">name = #{name},</if>
//	  <if test="age != null">age = #{age},</if>
//	</set>
//	WHERE id = #{id}
func NewSetNode(nodes ...Node) *TrimNode {
	return &TrimNode{
		Nodes:           MixedNode(nodes),
		Prefix:          "SET",
		SuffixOverrides: []string{","},
	}
}
