package webhook

import "testing"

func TestVerify(t *testing.T) {
	secret := "super-secret"
	payload := []byte(`{"action": "opened"}`)

	t.Run("round trip", func(t *testing.T) {
		sig := Sign(secret, payload)
		if !Verify(secret, payload, sig) {
			t.Error("signature should verify")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		sig := Sign("other", payload)
		if Verify(secret, payload, sig) {
			t.Error("signature from wrong secret must not verify")
		}
	})

	t.Run("tampered payload", func(t *testing.T) {
		sig := Sign(secret, payload)
		if Verify(secret, []byte(`{"action": "closed"}`), sig) {
			t.Error("tampered payload must not verify")
		}
	})

	t.Run("missing or malformed header", func(t *testing.T) {
		if Verify(secret, payload, "") {
			t.Error("empty header must not verify")
		}
		if Verify(secret, payload, "md5=abc") {
			t.Error("non-sha256 header must not verify")
		}
	})
}
