/*
   Copyright The hacfs Authors.

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

package keyset

import (
	"github.com/hacfs/hacfs/core/ticket"
)

// ImportTicket registers the title key a ticket carries under its rights
// ID. Personalized tickets cannot be unwrapped and fail with
// ErrNotImplemented.
func (s *Set) ImportTicket(t *ticket.Ticket) error {
	key, err := t.TitleKey()
	if err != nil {
		return err
	}
	s.AddTitleKey(t.RightsID, key)
	return nil
}
