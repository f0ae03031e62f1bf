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

package oceanvalutil

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/skratchdot/open-golang/open"
)

// RunWeb validates the model dataset at modelFile as configured by vc
// and then serves an HTML interface to the results at addr. When
// openBrowser is true it also attempts to open the interface in the
// default browser. It blocks until the server fails.
func RunWeb(modelFile string, vc *ValidationConfig, addr string, openBrowser bool) error {
	v, err := LoadValidator(modelFile)
	if err != nil {
		return err
	}
	if err := RunValidations(context.Background(), v, vc); err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           v.WebHandler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	log.Println("Server starting... ")
	if openBrowser {
		open.Run("http://" + addr)
		fmt.Println("If not opened automatically, please visit http://" + addr)
	}
	return srv.ListenAndServe()
}
