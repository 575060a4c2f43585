// Package metadata loads collection manifests and generates the block, flow and worker
// records published to the registry.
//
// A manifest is a YAML document shipped by each collection, describing what the
// collection exposes:
//
//	collection: prefect-aws
//	logo_url: https://images.ctfassets.net/aws.png
//	blocks:
//	  - slug: s3-bucket
//	    name: S3 Bucket
//	    class: S3Bucket
//	    capabilities: [write-path, read-path]
//	    fields: {title: S3Bucket, type: object}
//	flows:
//	  - name: transfer
//	    function: transfer_flow
//	    module: prefect_aws.flows
//	workers:
//	  - type: ecs
//	    class: ECSWorker
//	    default_base_job_configuration: {job_configuration: {}}
package metadata
