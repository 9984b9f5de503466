package sharecrypto

import "testing"

func TestEncryptDeterministic(t *testing.T) {
	var pub [32]byte
	for i := range pub {
		pub[i] = byte(i)
	}
	seed := []byte("0123456789abcdef0123456789abcdef")
	plaintext := []byte(`{"pool_id":"p","member_id":"m"}`)

	a, err := Encrypt(pub, plaintext, seed)
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	b, err := Encrypt(pub, plaintext, seed)
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}

	if string(a) != string(b) {
		t.Error("Encrypt with the same seed should be deterministic (P3)")
	}

	other, err := Encrypt(pub, plaintext, []byte("different-seed-bytes-000000000000"))
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if string(other) == string(a) {
		t.Error("Encrypt with a different seed should not collide")
	}
}

func TestMemberKeySignVerify(t *testing.T) {
	var miniSecret [32]byte
	for i := range miniSecret {
		miniSecret[i] = byte(i + 1)
	}

	k, err := NewMemberKey(miniSecret)
	if err != nil {
		t.Fatalf("NewMemberKey returned error: %v", err)
	}

	msg := []byte("some ciphertext")
	sig, err := k.Sign(msg)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if sig == ([64]byte{}) {
		t.Error("Sign returned an all-zero signature")
	}

	pub := k.Public()
	if pub == ([32]byte{}) {
		t.Error("Public returned an all-zero key")
	}
}
