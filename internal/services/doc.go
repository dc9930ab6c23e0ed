// Package services implements clients for the external dataset providers.
//
// # OpenNeuro
//
// [OpenNeuroClient] talks to the OpenNeuro GraphQL API. It is used when a dataset is
// registered by database id without a version, to record the latest snapshot tag.
// The files themselves are fetched from the public S3 bucket by tasks.OpenNeuroFetcher,
// not through this API.
//
// An API key is optional. When set it is sent as a bearer token through an
// [oauth2.StaticTokenSource], so the [http.Client] carries it on every request.
//
// # Error Handling
//
// Failures wrap sentinels from the shared package:
//   - [shared.ErrAPIRequest] : transport failure, non-2xx status or GraphQL errors
//   - [shared.ErrNotFound] : the dataset or its snapshots do not exist
package services
