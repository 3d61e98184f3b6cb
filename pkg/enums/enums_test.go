package enums

import "testing"

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"CUSTOMER": RoleCustomer,
		"vendor":   RoleVendor,
		" Admin ":  RoleAdmin,
	}
	for raw, want := range cases {
		got, err := ParseRole(raw)
		if err != nil {
			t.Fatalf("ParseRole(%q) error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
	if Role("").IsValid() {
		t.Fatal("empty role must be invalid")
	}
}

func TestParsePaymentMethod(t *testing.T) {
	if got, err := ParsePaymentMethod("Credit Card"); err != nil || got != PaymentMethodCreditCard {
		t.Fatalf("unexpected result %q %v", got, err)
	}
	if _, err := ParsePaymentMethod("bitcoin"); err == nil {
		t.Fatal("expected unknown payment method to fail")
	}
}
