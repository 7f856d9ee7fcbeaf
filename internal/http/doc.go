// Package http provides the transfer client used to talk to the remote
// archive.
//
// This package handles:
//   - Connection pooling shared by all concurrent retrievals
//   - JSON calls with retry and exponential backoff on server errors
//   - Streaming downloads verified against Content-Length
//   - Classification of transfer faults as transient
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	var job jobStatus
//	err := client.DoJSON(ctx, "GET", url, header, nil, &job)
//
//	n, err := client.Download(ctx, href, header, file)
//	if http.IsTransient(err) {
//	    // worth another attempt
//	}
package http
