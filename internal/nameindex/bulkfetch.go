/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package nameindex

import (
	"bytes"
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"
)

// PrepareBulkRequest marks req as accepting a gzip-transported body. npm's
// /-/all dump and PyPI's simple index both run tens of megabytes of JSON
// and are served gzip-compressed; setting Accept-Encoding ourselves also
// disables net/http's own transparent decompression, so DecodeBulkBody is
// the only place that inflates the body.
func PrepareBulkRequest(req *http.Request) {
	req.Header.Set("Accept-Encoding", "gzip")
}

// DecodeBulkBody inflates body when contentEncoding is "gzip", using
// klauspost/compress rather than stdlib compress/gzip since a bulk-catalog
// body this large is exactly the case klauspost optimizes for. Any other
// contentEncoding value is returned unchanged.
func DecodeBulkBody(body []byte, contentEncoding string) ([]byte, error) {
	if contentEncoding != "gzip" {
		return body, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return io.ReadAll(zr)
}
