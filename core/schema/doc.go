/*
Package schema turns entity declarations into immutable entity schemas.

An entity type declares its fields statically. Each field carries a free-form
metadata block holding directives of a fixed vocabulary:

	entity: user
	fields:
	  - name: uid
	    meta: |
	      @Api\Table("user")
	      @Api\Column(name="uid", type="int")
	      @Api\Validate(regex="[0-9]+")
	      @Api\Contextual()
	  - name: mail
	    meta: |
	      @Api\Table("user")
	      @Api\Column(name="mail", type="varchar", length="255")
	      @Api\Validate(function="valid_email_address")
	      @Api\OneInGroup("social")
	      @Api\Contextual()

# Directives

  - Table(name): the logical table the field is stored in.
  - Column(name, real, type, length, required, context): storage alias,
    declared type, length and flags.
  - Validate(function, regex): a named predicate and/or a pattern the
    value's string form must fully match.
  - OneInGroup(name): membership in an "at least one of" group.
  - Contextual(): the field may be used through the context channel to
    locate an existing record.

Arguments are comma separated key="value" pairs or a single positional
value. Unknown directive names are skipped unless Options.Strict is set.

# Types

Two value types exist: integer and string. The aliases int, varchar, char
and text are accepted and normalized.

Parse is a pure function of its input: parsing the same declaration twice
yields schemas that compare Equal. Caching lives in the registry package.
*/
package schema
