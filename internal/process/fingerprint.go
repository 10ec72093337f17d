// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package process

import (
	"crypto/sha256"
	"encoding/hex"

	yaml "gopkg.in/yaml.v2"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/manifest"
)

// Fingerprint computes the per-node cache key suffix for ops, per spec.md
// §4.4: nodes with no operations share a cache entry keyed by (url, ref)
// alone, so an empty ops list yields an empty fingerprint. Otherwise the
// operations are serialized in a stable, canonical form (their YAML
// encoding, which preserves field order as declared on the struct) and
// hashed, so two nodes that inherit the same repo under different `with`
// lists never collide.
func Fingerprint(ops manifest.Manifest) (string, error) {
	if len(ops) == 0 {
		return "", nil
	}
	enc, err := yaml.Marshal(ops)
	if err != nil {
		return "", errors.Annotate(err, "fingerprinting operations").Tag(corerr.ManifestParse).Err()
	}
	sum := sha256.Sum256(enc)
	return hex.EncodeToString(sum[:]), nil
}
