// Package licentra provides a Go client for the Licentra license validation API.
//
// Install with:
//
//	go get github.com/licentra/licentra-go/licentra
//
// It supports two ways of reaching the validation endpoint:
//
//   - Directly, with the application id and secret held by the caller
//   - Through a proxy that keeps those credentials server side
//
// # Direct
//
//	client := licentra.NewClient("https://licentra.example.com", licentra.Credentials{
//	    AppID:     "your-app-id",
//	    APISecret: "your-app-secret",
//	})
//	res, err := client.Validate(ctx, "LIC-XXXX-YYYY")
//
// # Through a proxy
//
// The proxy client sends only the license key:
//
//	client := licentra.NewProxyClient("http://localhost:4000/validate-license")
//	res, err := client.Validate(ctx, "LIC-XXXX-YYYY")
//
// A non-2xx answer is returned as *UpstreamError. A completed call returns a
// *Result whatever the license's validity; check Result.Data.Valid.
package licentra
