// Package output encodes command reports as text, YAML, or JSON and sends
// them to stdout or a file.
//
//   - Encoding (registry.go): a [Registry] maps format names to [Encoder]
//     functions. [DefaultRegistry] knows yaml and json.
//
//   - Writers (writer.go): pluggable destinations via the [Writer]
//     interface, with [StdoutWriter] and [FileWriter] implementations.
//
//   - Reports (report.go): the structured result of a sync run.
package output
