package battle

// residual applies the damage c takes after its own action: poison or burn,
// then Leech Seed. Toxic's counter scales both. The [of] attribution on
// poison and burn follows whether c's chosen move targeted the foe.
func (b *Battle) residual(c *Combatant, ofFoe bool) {
	foe := c.Side.Foe().Active()
	tox := c.Volatiles.Get(VolToxic)
	tick := func() int {
		dmg := max(1, c.MaxHP()/16)
		if tox != nil {
			tox.Counter++
			dmg *= tox.Counter
		}
		return dmg
	}

	switch c.Status {
	case StatusPoison, StatusToxic, StatusBurn:
		dmg := tick()
		src := StatusPoison.String()
		if c.Status == StatusBurn {
			src = StatusBurn.String()
		}
		kws := []KWArg{from(src)}
		if ofFoe && c.Status != StatusToxic {
			kws = append(kws, of(foe))
		}
		b.hurt(c, dmg, kws...)
		if c.HP == 0 {
			return
		}
	}

	if c.Volatiles.Has(VolLeechSeed) {
		dmg := tick()
		b.hurt(c, dmg, from("Leech Seed"), of(foe))
		if foe.HP > 0 && foe.HP < foe.MaxHP() {
			foe.HP = min(foe.MaxHP(), foe.HP+dmg)
			b.emit(evHeal(foe).with(kw("silent")))
		}
	}
}
