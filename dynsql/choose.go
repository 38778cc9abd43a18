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

// ChooseNode evaluates its guarded branches in order and applies the first
// whose guard is truthy, falling back to the otherwise branch when no guard
// matches.
//
//	<choose>
//	  <when test="id != null">AND id = #{id}</when>
//	  <when test="name != null">AND name = #{name}</when>
//	  <otherwise>AND status = 'ACTIVE'</otherwise>
//	</choose>
type ChooseNode struct {
	Whens     []*WhenNode
	Otherwise MixedNode
}

func (c *ChooseNode) Apply(ctx *Context) (bool, error) {
	for _, when := range c.Whens {
		matched, err := when.Match(ctx)
		if err != nil {
			return false, err
		}
		if matched {
			return when.Nodes.Apply(ctx)
		}
	}
	if len(c.Otherwise) > 0 {
		return c.Otherwise.Apply(ctx)
	}
	return false, nil
}

var _ Node = (*ChooseNode)(nil)
