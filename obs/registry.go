/*
Copyright © 2021 the OceanVal authors.
This file is part of OceanVal.

OceanVal is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanVal is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanVal.  If not, see <http://www.gnu.org/licenses/>.
*/

package obs

import "github.com/oceanmodel/oceanval"

// DefaultStore fetches observations from the public archive and is the
// store behind the loaders this package registers.
var DefaultStore = NewStore("")

func init() {
	oceanval.RegisterObs(NewOISSTv2(DefaultStore))
	oceanval.RegisterObs(NewCCIv3(DefaultStore))
	oceanval.RegisterObs(NewHadISST(DefaultStore))
	oceanval.RegisterObs(NewNSIDC(DefaultStore))
	oceanval.RegisterObs(NewARMOR3D(DefaultStore))
	oceanval.RegisterObs(NewEN4(DefaultStore))
	oceanval.RegisterObs(NewWOA23(DefaultStore))
	oceanval.RegisterObs(NewLOPS(DefaultStore))
}
