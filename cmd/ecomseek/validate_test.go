package main

import "testing"

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"纯域名", "shop.example.com", "shop.example.com", false},
		{"大写转小写", "Shop.Example.COM", "shop.example.com", false},
		{"完整URL取host", "https://shop.example.com/products", "shop.example.com", false},
		{"带尾部斜杠的URL", "http://shop.example.com/", "shop.example.com", false},
		{"域名带路径残留", "shop.example.com/sale", "shop.example.com", false},
		{"首尾空白", "  shop.example.com  ", "shop.example.com", false},
		{"空输入", "", "", true},
		{"只有协议", "https://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDomain(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeDomain() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("NormalizeDomain() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		run     func() error
		wantErr bool
	}{
		{"有效参数", func() error {
			return ValidateFlags("shop.example.com", 100, false, 0, 3)
		}, false},
		{"负页面数", func() error {
			return ValidateFlags("shop.example.com", -1, false, 0, 3)
		}, true},
		{"无新商品阈值需配合无限模式", func() error {
			return ValidateFlags("shop.example.com", 100, false, 20, 3)
		}, true},
		{"无限模式下阈值有效", func() error {
			return ValidateFlags("shop.example.com", 0, true, 20, 3)
		}, false},
		{"并发数超限", func() error {
			return ValidateFlags("shop.example.com", 100, false, 0, 200)
		}, true},
		{"空域名跳过校验", func() error {
			return ValidateFlags("", 100, false, 0, 3)
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
