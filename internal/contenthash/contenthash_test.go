package contenthash

import "testing"

func TestBytes(t *testing.T) {
	got := Bytes([]byte("hello"))

	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}
}

func TestBytes_DistinctInputs(t *testing.T) {
	a := Bytes([]byte("receipt-a"))
	b := Bytes([]byte("receipt-b"))
	if a == b {
		t.Error("different byte content produced the same hash")
	}
}

func TestStructured_KeyOrderInvariant(t *testing.T) {
	a := map[string]interface{}{"a": 1, "b": 2}
	b := map[string]interface{}{"b": 2, "a": 1}

	hashA, err := Structured(a)
	if err != nil {
		t.Fatalf("Structured(a) failed: %v", err)
	}
	hashB, err := Structured(b)
	if err != nil {
		t.Fatalf("Structured(b) failed: %v", err)
	}

	if hashA != hashB {
		t.Errorf("key order changed the hash: %q vs %q", hashA, hashB)
	}
}

func TestStructured_ArrayOrderSensitive(t *testing.T) {
	a := map[string]interface{}{"items": []string{"x", "y"}}
	b := map[string]interface{}{"items": []string{"y", "x"}}

	hashA, err := Structured(a)
	if err != nil {
		t.Fatalf("Structured(a) failed: %v", err)
	}
	hashB, err := Structured(b)
	if err != nil {
		t.Fatalf("Structured(b) failed: %v", err)
	}

	if hashA == hashB {
		t.Error("array order should change the hash, got identical digests")
	}
}

func TestStructured_StructAndMapAgree(t *testing.T) {
	type payload struct {
		StoreName    string  `json:"store_name"`
		PurchaseDate string  `json:"purchase_date"`
		Total        float64 `json:"total"`
	}

	s := payload{StoreName: "Carrefour", PurchaseDate: "2025-06-01", Total: 42.5}
	m := map[string]interface{}{
		"total":         42.5,
		"store_name":    "Carrefour",
		"purchase_date": "2025-06-01",
	}

	hashS, err := Structured(s)
	if err != nil {
		t.Fatalf("Structured(struct) failed: %v", err)
	}
	hashM, err := Structured(m)
	if err != nil {
		t.Fatalf("Structured(map) failed: %v", err)
	}

	if hashS != hashM {
		t.Errorf("struct and equivalent map hashed differently: %q vs %q", hashS, hashM)
	}
}

func TestStructured_Deterministic(t *testing.T) {
	v := map[string]interface{}{
		"store_name": "Monoprix",
		"items": []map[string]interface{}{
			{"raw_text": "LAIT DEMI ECREME", "price": 1.15, "quantity": 2.0},
		},
	}

	first, err := Structured(v)
	if err != nil {
		t.Fatalf("Structured failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Structured(v)
		if err != nil {
			t.Fatalf("Structured failed on repeat: %v", err)
		}
		if again != first {
			t.Fatalf("Structured not deterministic: %q vs %q", again, first)
		}
	}
}
