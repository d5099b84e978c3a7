// Package config loads groundlink settings from a YAML file.
//
// Keys missing from the file keep their defaults, and a missing file is not
// an error:
//
//	system_id: 245
//	component_id: 190
//	target:
//	  system_id: 1
//	  component_id: 1
//	endpoints:
//	  - udps:0.0.0.0:14550
//	command:
//	  timeout: 500ms
//	  retries: 3
//	ftp:
//	  timeout: 200ms
//	  retries: 10
//	  root: /var/lib/groundlink
package config
