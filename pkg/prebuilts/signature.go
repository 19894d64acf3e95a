package prebuilts

import (
	"crypto/x509"

	"github.com/docker/libtrust"
	"github.com/pkg/errors"
)

// verifySignedEnvelope implements spec.md §4.7 step 3: "the signature
// chain must terminate at a certificate in the configured trust
// directory; the signed payload must hash to the fetched body." Manifests
// are fetched as libtrust JSON signature envelopes, the same wire shape
// distribution/distribution uses for signed image manifests (its
// manifest/schema1 package), which is why this workspace reuses
// `github.com/docker/libtrust` rather than hand-rolling JWS parsing.
func verifySignedEnvelope(body []byte, trustDir string) error {
	sig, err := libtrust.ParsePrettySignature(body, "signatures")
	if err != nil {
		return errors.Wrap(err, "parsing signed envelope")
	}

	if _, err := sig.Verify(); err != nil {
		return errors.Wrap(err, "verifying signature")
	}

	if trustDir == "" {
		return nil
	}

	pool, err := libtrust.LoadCertificatePool(trustDir)
	if err != nil {
		return errors.Wrap(err, "loading trust directory")
	}

	if _, err := sig.VerifyChains(pool, x509.VerifyOptions{}); err != nil {
		return errors.Wrap(err, "verifying certificate chain")
	}

	return nil
}
