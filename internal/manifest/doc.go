// Package manifest loads the fleet and span-group definitions from HCL files.
//
// A manifest describes the hosts of the fleet, the resource factories every
// host runs at group initialization and the span groups themselves:
//
//	host "alpha" {
//	  address = env.ALPHA_ADDR
//	  port    = 7001
//	  has     = ["warehouse"]
//	}
//
//	resource "warehouse" {
//	  factory = "HttpClient"
//	}
//
//	group "ingest" {
//	  span "extract" {
//	    method   = "Print"
//	    requires = ["@warehouse"]
//	  }
//	  span "beta.load" {
//	    method   = "Print"
//	    requires = ["extract"]
//	  }
//	}
//
// Method and factory names are resolved against a handlers catalog when the
// manifest is applied to a registry. Expressions may read process
// environment variables through the `env` object.
package manifest
