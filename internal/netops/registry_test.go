package netops

import (
	"context"
	"errors"
	"testing"

	"github.com/guestgate/guestgate/internal/models"
)

func TestRegistryBuiltins(t *testing.T) {
	r := DefaultRegistry()

	supported := []models.DeviceBrand{
		models.BrandUbiquiti,
		models.BrandMikrotik,
		models.BrandCisco,
		models.BrandOpenWrt,
		models.BrandTPLink,
		models.BrandAsus,
		models.BrandDLink,
		models.BrandNetgear,
		models.BrandOther,
	}
	for _, brand := range supported {
		if !r.Supported(brand) {
			t.Errorf("expected brand %q to be supported", brand)
		}
	}

	for _, brand := range []models.DeviceBrand{models.BrandAruba, models.BrandFortinet} {
		if r.Supported(brand) {
			t.Errorf("expected brand %q to be unsupported", brand)
		}
	}
}

func TestSelectAdapterUnsupportedBrand(t *testing.T) {
	r := DefaultRegistry()
	device := &models.NetworkDevice{
		Brand: models.BrandAruba,
		Host:  "10.0.0.1",
		Port:  443,
	}

	_, err := r.SelectAdapter(device, Credentials{})
	if err == nil {
		t.Fatal("expected error for unsupported brand")
	}
	var ub *UnsupportedBrandError
	if !errors.As(err, &ub) {
		t.Fatalf("error %T, want *UnsupportedBrandError", err)
	}
	if ub.Brand != models.BrandAruba {
		t.Errorf("error carries brand %q, want %q", ub.Brand, models.BrandAruba)
	}
	if IsCountable(err) {
		t.Error("unsupported brand must not count as an operation failure")
	}
}

func TestSelectAdapterBindsDeviceConfig(t *testing.T) {
	r := DefaultRegistry()
	device := &models.NetworkDevice{
		Brand:          models.BrandMikrotik,
		Host:           "192.168.88.1",
		Port:           443,
		UseTLS:         true,
		TimeoutSeconds: 5,
	}

	adapter, err := r.SelectAdapter(device, Credentials{Username: "api", Password: "secret"})
	if err != nil {
		t.Fatalf("SelectAdapter: %v", err)
	}
	if adapter.Vendor() != "mikrotik" {
		t.Errorf("Vendor() = %q, want mikrotik", adapter.Vendor())
	}
}

func TestSNMPProbeBrandsAreReadOnly(t *testing.T) {
	r := DefaultRegistry()
	device := &models.NetworkDevice{
		Brand: models.BrandTPLink,
		Host:  "10.0.0.2",
		Port:  161,
	}
	adapter, err := r.SelectAdapter(device, Credentials{Community: "public"})
	if err != nil {
		t.Fatalf("SelectAdapter: %v", err)
	}

	_, err = adapter.BlockMAC(context.Background(), "AA:BB:CC:DD:EE:FF", "test")
	var ns *NotSupportedError
	if !errors.As(err, &ns) {
		t.Fatalf("BlockMAC over SNMP returned %v, want *NotSupportedError", err)
	}
	if IsCountable(err) {
		t.Error("unsupported capability must not count as an operation failure")
	}
}
