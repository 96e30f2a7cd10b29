package call

var colors = []string{
	"amber", "azure", "coral", "cobalt", "crimson", "indigo", "ivory", "jade", "lilac", "mauve",
	"ochre", "olive", "pearl", "plum", "rose", "ruby", "rust", "sage", "scarlet", "teal",
}

var birds = []string{
	"finch", "heron", "lark", "magpie", "oriole", "osprey", "owl", "pigeon", "plover", "quail",
	"raven", "robin", "sparrow", "starling", "swift", "tern", "thrush", "wren", "kestrel", "egret",
}

var instruments = []string{
	"banjo", "bugle", "cello", "cymbal", "drum", "fiddle", "flute", "gong", "harp", "horn",
	"kazoo", "lute", "oboe", "organ", "piano", "sitar", "tabla", "tuba", "ukulele", "viola",
}

var places = []string{
	"harbor", "meadow", "canyon", "valley", "summit", "island", "lagoon", "prairie", "glacier", "delta",
	"forest", "grove", "marsh", "orchard", "plateau", "reef", "ridge", "tundra", "dune", "fjord",
}

var moods = []string{
	"breezy", "bright", "calm", "cheery", "cozy", "dreamy", "eager", "gentle", "happy", "jolly",
	"lively", "lucky", "mellow", "merry", "plucky", "quiet", "snug", "sunny", "swift", "witty",
}

var things = []string{
	"anchor", "beacon", "button", "comet", "compass", "ember", "feather", "kettle", "lantern", "marble",
	"mitten", "pebble", "pixel", "puddle", "rocket", "signal", "teacup", "thimble", "whistle", "yarn",
}
