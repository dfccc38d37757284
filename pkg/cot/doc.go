// Package cot implements the Cursor-on-Target (CoT) event model and its
// XML wire codec.
//
// A CoT message is a single top-level <event> element:
//
//	<event version="2.0" uid="..." type="a-f-G-U-C" how="m-g"
//	       time="..." start="..." stale="...">
//	  <point lat="..." lon="..." hae="..." ce="..." le="..."/>
//	  <detail>
//	    <contact callsign="..."/>
//	    <__group name="Cyan" role="Team Member"/>
//	    <track speed="..." course="..."/>
//	    ...
//	  </detail>
//	</event>
//
// The decoder is deliberately permissive: it extracts the element set it
// knows about and ignores everything else, because deployed servers and
// clients attach vendor-specific detail elements freely. Only uid, type
// and the point coordinates are required; all other fields carry
// documented defaults.
//
// The type attribute is a dotted/dashed taxonomy code. This package
// treats it as an opaque string and only pattern-matches the prefixes
// needed for dispatch (chat, waypoint, emergency).
package cot
