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

// Package oceanval validates ocean general circulation model output against
// observational climate datasets. It loads reference observation grids from
// a remote object store, aligns them spatially and temporally with model
// output, regrids one onto the grid of the other, and computes error fields
// and aggregate statistics.
package oceanval

// Version gives the version number of this library.
const Version = "1.1.0"

// DataVersion is the version of the dataset file layout expected by
// ReadDataset, which may be updated less frequently than the version
// of the library itself.
const DataVersion = "1.0"
