// Package config loads the YAML configuration of a burrow node.
//
//	dataDir: /var/lib/burrow
//	healthAddr: 0.0.0.0:9090
//	log:
//	  level: debug
//	  json: true
//	scheduler:
//	  interval: 5s
//	  workingPeriod: 168h
//	raft:
//	  enabled: true
//	  nodeId: node-1
//	  bindAddr: 10.0.0.1:7946
//	availability:
//	  cacheTTL: 30s
//
// Keys left out keep the values of Default.
package config
