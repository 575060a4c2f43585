// Package model describes the base objects manipulated by the collection registry.
//
// The object model is composed of:
//
//  Collections:
//    An installable integration package, identified by a dash-separated name and released
//    under version tags.
//
//  Varieties:
//    The kind of metadata published for a collection: blocks, flows or workers.
//
//  Records:
//    The metadata of one variety for one collection: a mapping from item slug to descriptor.
//
//  Snapshots:
//    An immutable, per-release copy of a record, stored at
//    collections/{collection}/{variety}s/{version}.json.
//
//  Views:
//    The aggregate of the latest record of every collection for one variety, stored at
//    views/aggregate-{variety}-metadata.json.
package model
