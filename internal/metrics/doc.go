// Package metrics aggregates latency and status statistics for requests sent
// by the form client.
//
// A [Collector] is shared by every dispatch of a request client:
//
//	collector := metrics.NewCollector()
//	collector.RecordRequest(latency, err, &metrics.RequestMetadata{
//		Method:     "POST",
//		Endpoint:   "/register",
//		StatusCode: 422,
//	})
//	stats := collector.Stats(collector.Elapsed())
//
// Latency percentiles come from an HDR histogram. Responses are bucketed by
// method and status code and failures are grouped by a readable error name.
package metrics
